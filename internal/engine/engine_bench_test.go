package engine

import (
	"context"
	"testing"
)

// BenchmarkEngine_ProcessTick measures one incremental event through the loop handler.
func BenchmarkEngine_ProcessTick(b *testing.B) {
	e := New(Deps{Dialer: &fakeDialer{}, Credentials: &memCreds{}}, Config{})
	e.runCtx = context.Background()
	conn := &fakeConn{id: 1}
	e.conn = conn
	e.connID = conn.id
	e.process(inboundMsg{connID: 1, ev: fullSync(60, "1000", true)})

	msg := inboundMsg{connID: 1, ev: tick(60)}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		e.process(msg)
	}
}

// BenchmarkEngine_FullPipeline measures end-to-end processing including channel overhead.
func BenchmarkEngine_FullPipeline(b *testing.B) {
	e := New(Deps{Dialer: &fakeDialer{}, Credentials: &memCreds{}}, Config{InboxSize: 1024})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)
	if err := e.Sync(ctx, func() {
		e.conn = &fakeConn{id: 1}
		e.connID = 1
	}); err != nil {
		b.Fatal(err)
	}
	e.post(inboundMsg{connID: 1, ev: fullSync(60, "1000", true)})

	msg := inboundMsg{connID: 1, ev: tick(60)}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		e.post(msg)
	}
	if err := e.Sync(ctx, nil); err != nil {
		b.Fatal(err)
	}
}
