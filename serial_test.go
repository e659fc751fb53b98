// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall_test

import (
	"testing"

	"code.hybscloud.com/xcall"
)

func TestSerialMonotonic(t *testing.T) {
	p1, _ := xcall.NewChannel(0)
	p2, _ := xcall.NewChannel(0)
	p3, _ := xcall.NewChannel(0)

	s1 := p1.Serial()
	s2 := p2.Serial()
	s3 := p3.Serial()

	if s1 >= s2 {
		t.Fatalf("serials not increasing: %d >= %d", s1, s2)
	}
	if s2 >= s3 {
		t.Fatalf("serials not increasing: %d >= %d", s2, s3)
	}
}

func TestPortSerial(t *testing.T) {
	a, b := xcall.NewChannel(0)

	if a.Serial() != b.Serial() {
		t.Fatalf("pair serials differ: %d != %d", a.Serial(), b.Serial())
	}
}
