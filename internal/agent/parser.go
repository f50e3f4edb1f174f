package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	bufferSize  = 64 * 1024
	maxTokenSize = 10 * 1024 * 1024
)

type ndjsonBase struct {
	Type string `json:"type"`
}

type ndjsonInit struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

type ndjsonContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ndjsonAssistant struct {
	Message struct {
		Content []ndjsonContentBlock `json:"content"`
	} `json:"message"`
}

type ndjsonUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
}

type ndjsonResult struct {
	SessionID         string      `json:"session_id"`
	Result            string      `json:"result"`
	TotalCostUSD       float64     `json:"total_cost_usd"`
	Usage             ndjsonUsage `json:"usage"`
	IsError           bool        `json:"is_error"`
	PermissionDenials []string    `json:"permission_denials"`
}

// parseResult is the accumulated, transport-agnostic reading of an NDJSON
// event stream.
type parseResult struct {
	SessionID         string
	Model             string
	FinalText         string
	StreamText        string
	Usage             Usage
	TotalCostUSD       float64
	PermissionDenials []string
}

// parseNDJSON reads an agent subprocess's streamed NDJSON event output
// (system/init, assistant/message, result), accumulating assistant text and
// requiring a terminal result event, mirroring the prior
// internal/claude/parser.go.
func parseNDJSON(r io.Reader) (*parseResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, bufferSize), maxTokenSize)

	res := &parseResult{}
	var stream strings.Builder
	sawResult := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var base ndjsonBase
		if err := json.Unmarshal([]byte(line), &base); err != nil {
			continue // tolerate non-JSON noise lines, same lenience as before
		}
		switch base.Type {
		case "system":
			var init ndjsonInit
			if err := json.Unmarshal([]byte(line), &init); err == nil {
				if init.SessionID != "" {
					res.SessionID = init.SessionID
				}
				if init.Model != "" {
					res.Model = init.Model
				}
			}
		case "assistant":
			var asst ndjsonAssistant
			if err := json.Unmarshal([]byte(line), &asst); err == nil {
				for _, block := range asst.Message.Content {
					if block.Type == "text" {
						stream.WriteString(block.Text)
					}
				}
			}
		case "result":
			var result ndjsonResult
			if err := json.Unmarshal([]byte(line), &result); err == nil {
				res.FinalText = result.Result
				res.TotalCostUSD = result.TotalCostUSD
				res.PermissionDenials = result.PermissionDenials
				res.Usage = Usage{
					InputTokens:         result.Usage.InputTokens,
					OutputTokens:        result.Usage.OutputTokens,
					CacheCreationTokens: result.Usage.CacheCreationTokens,
					CacheReadTokens:     result.Usage.CacheReadTokens,
				}
				if result.SessionID != "" {
					res.SessionID = result.SessionID
				}
			}
			sawResult = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("agent: scanning NDJSON stream: %w", err)
	}
	res.StreamText = stream.String()
	if !sawResult {
		return nil, fmt.Errorf("agent: no terminal result event found in stream")
	}
	return res, nil
}
