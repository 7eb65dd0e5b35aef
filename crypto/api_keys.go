package crypto

// PubKey verifies signatures of a single identity.
type PubKey interface {
	VerifySignature([]byte, []byte) bool
	Bytes() []byte
	Equals([]byte) bool
	Type() string
}

// PrivKey signs with a single identity.
type PrivKey interface {
	Sign([]byte) ([]byte, error)
	PubKey() PubKey
	Equals([]byte) bool
	Type() string
}

// Signature is a tuple containing signature body and reference to signing identity.
type Signature struct {
	// Body of the signature.
	Body []byte
	// Signer identity who produced the signature.
	Signer []byte
}

// Signer encapsulates asymmetric cryptographic schema together with private key management.
type Signer interface {
	// ID returns Signer identity like public key
	ID() []byte
	// Sign produces a MAC over the given content with internally managed identity.
	Sign([]byte) (Signature, error)
}
