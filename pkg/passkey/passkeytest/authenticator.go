// Package passkeytest provides an in-memory platform authenticator that
// produces attestation and assertion responses a WebAuthn relying party will
// verify. It is intended for tests only.
package passkeytest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const (
	flagUserPresent            = 0x01
	flagUserVerified           = 0x04
	flagBackupEligible         = 0x08
	flagBackupState            = 0x10
	flagAttestedCredentialData = 0x40
)

var b64 = base64.RawURLEncoding

type credential struct {
	id         []byte
	userHandle []byte
	key        *ecdsa.PrivateKey
	counter    uint32
}

// Authenticator is a software ES256 authenticator bound to one relying party.
// Credentials it creates are discoverable and report the user as verified.
type Authenticator struct {
	Origin string
	RPID   string

	// BackupEligible marks new credentials as multi-device and backed up
	BackupEligible bool

	mu          sync.Mutex
	credentials []*credential
}

// New returns an authenticator for the given origin and relying party id
func New(origin, rpID string) *Authenticator {
	return &Authenticator{Origin: origin, RPID: rpID}
}

type attestationObject struct {
	Format   string         `cbor:"fmt"`
	AttStmt  map[string]any `cbor:"attStmt"`
	AuthData []byte         `cbor:"authData"`
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// CreateAttestation answers creation options with a "none" attestation
// response encoded as the browser would post it.
func (a *Authenticator) CreateAttestation(creation *protocol.CredentialCreation) ([]byte, error) {
	userHandle, err := userHandleOf(creation.Response.User.ID)
	if err != nil {
		return nil, err
	}
	return a.Register(creation.Response.Challenge, userHandle)
}

// Register creates a credential for userHandle and returns the attestation response
func (a *Authenticator) Register(challenge []byte, userHandle []byte) ([]byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}

	coseKey, err := webauthncbor.Marshal(webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: key.PublicKey.X.FillBytes(make([]byte, 32)),
		YCoord: key.PublicKey.Y.FillBytes(make([]byte, 32)),
	})
	if err != nil {
		return nil, fmt.Errorf("encode cose key: %w", err)
	}

	authData := a.authData(flagAttestedCredentialData, 0)
	authData = append(authData, make([]byte, 16)...) // zero aaguid
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(id)))
	authData = append(authData, id...)
	authData = append(authData, coseKey...)

	attObj, err := webauthncbor.Marshal(attestationObject{
		Format:   "none",
		AttStmt:  map[string]any{},
		AuthData: authData,
	})
	if err != nil {
		return nil, fmt.Errorf("encode attestation object: %w", err)
	}

	clientDataJSON, err := a.clientData("webauthn.create", challenge)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.credentials = append(a.credentials, &credential{id: id, userHandle: userHandle, key: key})
	a.mu.Unlock()

	return json.Marshal(map[string]any{
		"id":    b64.EncodeToString(id),
		"rawId": b64.EncodeToString(id),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64.EncodeToString(clientDataJSON),
			"attestationObject": b64.EncodeToString(attObj),
			"transports":        []string{"internal"},
		},
		"authenticatorAttachment": "platform",
		"clientExtensionResults":  map[string]any{},
	})
}

// CreateAssertion answers request options using the first matching credential
func (a *Authenticator) CreateAssertion(assertion *protocol.CredentialAssertion) ([]byte, error) {
	allowed := make([][]byte, 0, len(assertion.Response.AllowedCredentials))
	for _, d := range assertion.Response.AllowedCredentials {
		allowed = append(allowed, d.CredentialID)
	}
	return a.Assert(assertion.Response.Challenge, allowed)
}

// Assert signs challenge with a credential from allowed, or with the most
// recent credential when allowed is empty. The counter advances before signing.
func (a *Authenticator) Assert(challenge []byte, allowed [][]byte) ([]byte, error) {
	a.mu.Lock()
	cred := a.pick(allowed)
	if cred == nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("no matching credential")
	}
	cred.counter++
	counter := cred.counter
	a.mu.Unlock()

	authData := a.authData(0, counter)
	clientDataJSON, err := a.clientData("webauthn.get", challenge)
	if err != nil {
		return nil, err
	}

	clientHash := sha256.Sum256(clientDataJSON)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, cred.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}

	return json.Marshal(map[string]any{
		"id":    b64.EncodeToString(cred.id),
		"rawId": b64.EncodeToString(cred.id),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64.EncodeToString(clientDataJSON),
			"authenticatorData": b64.EncodeToString(authData),
			"signature":         b64.EncodeToString(sig),
			"userHandle":        b64.EncodeToString(cred.userHandle),
		},
		"authenticatorAttachment": "platform",
		"clientExtensionResults":  map[string]any{},
	})
}

// SetCounter overwrites the sign counter of every credential
func (a *Authenticator) SetCounter(n uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.credentials {
		c.counter = n
	}
}

// CredentialIDs returns the raw ids of the credentials created so far
func (a *Authenticator) CredentialIDs() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([][]byte, 0, len(a.credentials))
	for _, c := range a.credentials {
		ids = append(ids, append([]byte(nil), c.id...))
	}
	return ids
}

func (a *Authenticator) pick(allowed [][]byte) *credential {
	if len(allowed) == 0 {
		if len(a.credentials) == 0 {
			return nil
		}
		return a.credentials[len(a.credentials)-1]
	}
	for _, c := range a.credentials {
		for _, id := range allowed {
			if string(c.id) == string(id) {
				return c
			}
		}
	}
	return nil
}

func (a *Authenticator) authData(extraFlags byte, counter uint32) []byte {
	rpHash := sha256.Sum256([]byte(a.RPID))
	flags := byte(flagUserPresent|flagUserVerified) | extraFlags
	if a.BackupEligible {
		flags |= flagBackupEligible | flagBackupState
	}
	data := append([]byte{}, rpHash[:]...)
	data = append(data, flags)
	return binary.BigEndian.AppendUint32(data, counter)
}

func (a *Authenticator) clientData(ceremony string, challenge []byte) ([]byte, error) {
	return json.Marshal(clientData{
		Type:      ceremony,
		Challenge: b64.EncodeToString(challenge),
		Origin:    a.Origin,
	})
}

// userHandleOf accepts the user id in any of the forms creation options carry it
func userHandleOf(id any) ([]byte, error) {
	switch v := id.(type) {
	case protocol.URLEncodedBase64:
		return []byte(v), nil
	case []byte:
		return v, nil
	case string:
		decoded, err := b64.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decode user handle: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported user handle type %T", id)
	}
}
