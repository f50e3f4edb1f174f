package statusserver

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	assert.NotNil(t, hub.clients)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	c := &client{send: make(chan []byte, 4)}

	hub.register <- c
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister <- c
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcastDeliversToAllClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	a := &client{send: make(chan []byte, 4)}
	b := &client{send: make(chan []byte, 4)}
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(Event{Type: "transition", SubtaskID: "P1.M1.T1.S1", Status: "failed"})

	select {
	case data := <-a.send:
		assert.Contains(t, string(data), "P1.M1.T1.S1")
	case <-time.After(time.Second):
		t.Fatal("client a did not receive broadcast")
	}

	select {
	case data := <-b.send:
		assert.Contains(t, string(data), "P1.M1.T1.S1")
	case <-time.After(time.Second):
		t.Fatal("client b did not receive broadcast")
	}
}
