package vm

import "testing"

func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: got %v, want %v", msg, got, want)
	}
}

func assertNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertErr(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got nil")
	}
}

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory(8)
	m.Set(0, 0xAB)
	b, err := m.Get(0)
	assertNoErr(t, err)
	assertEqual(t, b, byte(0xAB), "Get(0)")
}

func TestMemoryGetOutOfRange(t *testing.T) {
	m := NewMemory(4)
	_, err := m.Get(4)
	assertErr(t, err)
	_, err = m.Get(-1)
	assertErr(t, err)
}

func TestMemoryGetBufSetBuf(t *testing.T) {
	m := NewMemory(8)
	m.SetBuf(2, 5, []byte{1, 2, 3})
	buf, err := m.GetBuf(2, 5)
	assertNoErr(t, err)
	if len(buf) != 3 || buf[0] != 1 || buf[1] != 2 || buf[2] != 3 {
		t.Fatalf("GetBuf(2,5) = %v", buf)
	}
}

func TestMemorySetBufLengthMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected SetBuf to panic on length mismatch")
		}
	}()
	m := NewMemory(8)
	m.SetBuf(0, 4, []byte{1, 2})
}

func TestMemoryInspect(t *testing.T) {
	m := NewMemoryFromBytes([]byte{0x01, 0x02, 0x03, 0x04})
	out, err := m.Inspect(0)
	assertNoErr(t, err)
	assertEqual(t, out, "0x0000: 0x01 0x02 0x03 0x04", "Inspect(0)")
}

func TestMemoryIsEmpty(t *testing.T) {
	assertEqual(t, NewMemory(0).IsEmpty(), true, "IsEmpty on zero-size")
	assertEqual(t, NewMemory(1).IsEmpty(), false, "IsEmpty on non-zero-size")
}
