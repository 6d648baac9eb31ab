package main

import (
	"sync"

	"github.com/nats-io/nats.go"
)

// loopback is an in-process stand-in for a NATS connection. Publish delivers
// to every subscriber of the subject on a separate goroutine, like the real
// client's async handlers.
type loopback struct {
	mu   sync.Mutex
	subs map[string][]nats.MsgHandler
}

func newLoopback() *loopback {
	return &loopback{subs: make(map[string][]nats.MsgHandler)}
}

func (l *loopback) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[subj] = append(l.subs[subj], cb)
	return &nats.Subscription{Subject: subj}, nil
}

func (l *loopback) Publish(subj string, data []byte) error {
	l.mu.Lock()
	handlers := append([]nats.MsgHandler(nil), l.subs[subj]...)
	l.mu.Unlock()
	for _, h := range handlers {
		go h(&nats.Msg{Subject: subj, Data: data})
	}
	return nil
}
