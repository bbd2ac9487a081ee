// Package identity holds the operator keypair and machine UUID, and
// produces/recovers the signatures that authenticate every outbound agent
// message.
package identity

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// Address is the 20-byte EVM-style operator address derived from a
// secp256k1 public key: Keccak256(pubkey.SerializeUncompressed()[1:])[12:].
type Address [20]byte

func (a Address) String() string {
	return fmt.Sprintf("0x%x", a[:])
}

// Signer holds one secp256k1 keypair plus the machine UUID chosen at agent
// install.
type Signer struct {
	MachineID  uuid.UUID
	privateKey *secp256k1.PrivateKey
}

// NewSigner constructs a Signer from an existing private key.
func NewSigner(machineID uuid.UUID, privateKey *secp256k1.PrivateKey) *Signer {
	return &Signer{MachineID: machineID, privateKey: privateKey}
}

// GenerateSigner creates a fresh keypair for a new machine install.
func GenerateSigner(machineID uuid.UUID) (*Signer, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewSigner(machineID, key), nil
}

// Address returns the operator address for this signer's keypair.
func (s *Signer) Address() Address {
	return AddressFromPublicKey(s.privateKey.PubKey())
}

// PrivateKeyBytes serializes the signer's private key, for persisting it
// across restarts. Callers own protecting the result at rest.
func (s *Signer) PrivateKeyBytes() []byte {
	return s.privateKey.Serialize()
}

// AddressFromPublicKey derives the 20-byte operator address from a
// secp256k1 public key.
func AddressFromPublicKey(pub *secp256k1.PublicKey) Address {
	uncompressed := pub.SerializeUncompressed() // 0x04 ‖ X ‖ Y, 65 bytes
	hash := sha3.NewLegacyKeccak256()
	hash.Write(uncompressed[1:])
	digest := hash.Sum(nil)

	var addr Address
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

// sign produces a 65-byte recoverable signature (r‖s‖v) over the given
// canonical-encoded bytes.
func (s *Signer) sign(canonical []byte) wire.Signature {
	compact := ecdsa.SignCompact(s.privateKey, hash32(canonical), false)
	// secp256k1's SignCompact format is [recovery_id+27, R, S]; the wire
	// format wants r‖s‖v, so rotate the recovery byte to the tail.
	var sig wire.Signature
	copy(sig[:64], compact[1:])
	sig[64] = compact[0] - 27
	return sig
}

// SignMetrics signs a MetricsPayload.
func (s *Signer) SignMetrics(p wire.MetricsPayload) wire.SignedMetrics {
	p.MachineID = s.MachineID
	return wire.SignedMetrics{MachineID: s.MachineID, Payload: p, Sig: s.sign(wire.EncodeMetrics(p))}
}

// SignNodeData signs a NodeDataPayload.
func (s *Signer) SignNodeData(p wire.NodeDataPayload) wire.SignedNodeData {
	p.MachineID = s.MachineID
	return wire.SignedNodeData{MachineID: s.MachineID, Payload: p, Sig: s.sign(wire.EncodeNodeData(p))}
}

// SignNameChange signs a NameChangePayload.
func (s *Signer) SignNameChange(p wire.NameChangePayload) wire.SignedNameChange {
	p.MachineID = s.MachineID
	return wire.SignedNameChange{MachineID: s.MachineID, Payload: p, Sig: s.sign(wire.EncodeNameChange(p))}
}

// SignLog signs a LogPayload.
func (s *Signer) SignLog(avsName, text string) wire.SignedLog {
	p := wire.LogPayload{MachineID: s.MachineID, AVSName: avsName, LogText: text}
	return wire.SignedLog{MachineID: s.MachineID, Payload: p, Sig: s.sign(wire.EncodeLog(p))}
}

// SignMachineData signs a MachineDataPayload.
func (s *Signer) SignMachineData(p wire.MachineDataPayload) wire.SignedMachineData {
	p.MachineID = s.MachineID
	return wire.SignedMachineData{MachineID: s.MachineID, Payload: p, Sig: s.sign(wire.EncodeMachineData(p))}
}

// SignHeartbeat signs a HeartbeatPayload.
func (s *Signer) SignHeartbeat(kind wire.HeartbeatKind, id string) wire.SignedHeartbeat {
	p := wire.HeartbeatPayload{MachineID: s.MachineID, Kind: kind, ID: id}
	return wire.SignedHeartbeat{MachineID: s.MachineID, Payload: p, Sig: s.sign(wire.EncodeHeartbeat(p))}
}

// Recover recovers the operator address from canonical-encoded bytes and a
// 65-byte recoverable signature. Ingress calls this for every inbound RPC
// and rejects the request unless the recovered address matches the
// machine's registered operator address.
func Recover(canonical []byte, sig wire.Signature) (Address, error) {
	var compact [65]byte
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact[:], hash32(canonical))
	if err != nil {
		return Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return AddressFromPublicKey(pub), nil
}

// hash32 reduces arbitrary-length canonical bytes to the 32-byte digest
// ECDSA signing operates over.
func hash32(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
