// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/xcall"
)

func TestPortPostReceive(t *testing.T) {
	a, b := xcall.NewChannel(0)
	if err := a.Post([]byte("ping"), nil); err != nil {
		t.Fatal(err)
	}
	m, err := b.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if string(m.Data) != "ping" {
		t.Fatalf("got %q, want ping", m.Data)
	}
	if _, err := b.Receive(); !iox.IsWouldBlock(err) {
		t.Fatalf("empty receive: got %v, want ErrWouldBlock", err)
	}
}

func TestPortBackpressure(t *testing.T) {
	a, _ := xcall.NewChannel(2)
	n := 0
	for ; n < 16; n++ {
		if err := a.Post([]byte{byte(n)}, nil); err != nil {
			if !iox.IsWouldBlock(err) {
				t.Fatalf("post %d: %v", n, err)
			}
			break
		}
	}
	if n == 16 {
		t.Fatal("bounded queue never filled")
	}
}

func TestPortFIFO(t *testing.T) {
	a, b := xcall.NewChannel(8)
	for i := range 5 {
		if err := a.Post([]byte{byte(i)}, nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := range 5 {
		m, err := b.Receive()
		if err != nil {
			t.Fatal(err)
		}
		if m.Data[0] != byte(i) {
			t.Fatalf("message %d out of order: %d", i, m.Data[0])
		}
	}
}

func TestPortCloseDrains(t *testing.T) {
	a, b := xcall.NewChannel(0)
	if err := a.Post([]byte("last"), nil); err != nil {
		t.Fatal(err)
	}
	a.Close()
	if !b.Closed() {
		t.Fatal("close not visible on the peer")
	}
	if err := b.Post([]byte("late"), nil); !errors.Is(err, xcall.ErrClosed) {
		t.Fatalf("post after close: got %v, want ErrClosed", err)
	}
	m, err := b.Receive()
	if err != nil || string(m.Data) != "last" {
		t.Fatalf("queued message lost: %q, %v", m.Data, err)
	}
	if _, err := b.Receive(); !errors.Is(err, xcall.ErrClosed) {
		t.Fatalf("receive after drain: got %v, want ErrClosed", err)
	}
}

func TestPortDetach(t *testing.T) {
	a, b := xcall.NewChannel(0)
	moved, err := a.Detach()
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Post(nil, nil); !errors.Is(err, xcall.ErrDetached) {
		t.Fatalf("post on detached port: got %v, want ErrDetached", err)
	}
	if _, err := a.Detach(); !errors.Is(err, xcall.ErrDetached) {
		t.Fatalf("second detach: got %v, want ErrDetached", err)
	}
	np := moved.(*xcall.Port)
	if np.Serial() != b.Serial() {
		t.Fatalf("moved port serial %d, want %d", np.Serial(), b.Serial())
	}
	if err := np.Post([]byte("x"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Receive(); err != nil {
		t.Fatal(err)
	}
}
