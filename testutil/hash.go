package testutil

// MockHasherReverse digests to the written bytes in reverse order.
type MockHasherReverse struct {
	MockHasher
}

func (s *MockHasherReverse) Sum(p []byte) []byte {
	r := make([]byte, len(s.v))
	for i, b := range s.v {
		r[len(r)-1-i] = b
	}

	return append(p, r...)
}

// MockHasher is an identity hash, Sum appends whatever was written since the
// last Reset. It keeps test fixtures readable while honoring the hash.Hash
// write-then-sum contract.
type MockHasher struct {
	v []byte
}

func (s *MockHasher) Write(p []byte) (int, error) {
	s.v = append(s.v, p...)
	return len(p), nil
}

func (s *MockHasher) Sum(p []byte) []byte {
	return append(p, s.v...)
}

func (s *MockHasher) Reset() {
	s.v = nil
}

func (s *MockHasher) Size() int {
	return len(s.v)
}

func (s *MockHasher) BlockSize() int {
	return 128
}
