package pii

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type CipherSuite struct {
	suite.Suite
	cipher *Cipher
}

func TestCipherSuite(t *testing.T) {
	suite.Run(t, new(CipherSuite))
}

func (s *CipherSuite) SetupTest() {
	var err error
	s.cipher, err = NewCipher("unit-test-secret")
	s.Require().NoError(err)
}

func (s *CipherSuite) TestRoundTrip() {
	s.Run("round trips typical PII values", func() {
		for _, plain := range []string{
			"13812345678",
			"110101199003071234",
			"short",
			"exactly sixteen!", // one full block, forces a padding-only block
		} {
			enc := s.cipher.Encrypt(plain)
			s.NotEqual(plain, enc)

			dec, err := s.cipher.Decrypt(enc)
			s.Require().NoError(err)
			s.Equal(plain, dec)
		}
	})

	s.Run("empty encrypts to empty", func() {
		s.Equal("", s.cipher.Encrypt(""))
		dec, err := s.cipher.Decrypt("")
		s.NoError(err)
		s.Equal("", dec)
	})

	s.Run("is deterministic for equal plaintexts", func() {
		s.Equal(s.cipher.Encrypt("13812345678"), s.cipher.Encrypt("13812345678"))
	})
}

func (s *CipherSuite) TestDecryptRejectsGarbage() {
	for _, bad := range []string{"not base64 !!", "QQ==", "QUJDREVGR0g="} {
		_, err := s.cipher.Decrypt(bad)
		s.Error(err, "input %q", bad)
	}
}

func (s *CipherSuite) TestKeyDerivation() {
	s.Run("different secrets produce different ciphertexts", func() {
		other, err := NewCipher("another-secret")
		s.Require().NoError(err)
		s.NotEqual(s.cipher.Encrypt("13812345678"), other.Encrypt("13812345678"))
	})

	s.Run("empty secret is rejected", func() {
		_, err := NewCipher("")
		s.Error(err)
	})
}

func (s *CipherSuite) TestMasking() {
	s.Equal("138****5678", MaskPhone("13812345678"))
	s.Equal("12345", MaskPhone("12345")) // non-standard length passes through
	s.Equal("110***********1234", MaskIDCard("110101199003071234"))
	s.Equal("1234567", MaskIDCard("1234567"))
}
