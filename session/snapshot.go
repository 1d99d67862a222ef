package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/pywat/compiler"
)

// encMode encodes canonically so that equal environments produce equal
// bytes, and therefore equal fingerprints.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("session: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Image is the persistent state of a session: its committed environment
// and the contents of its linear memory.
type Image struct {
	Env    *compiler.GlobalEnv `cbor:"1,keyasint"`
	Memory []byte              `cbor:"2,keyasint"`
}

// MarshalEnv serializes env to canonical CBOR.
func MarshalEnv(env *compiler.GlobalEnv) ([]byte, error) {
	return encMode.Marshal(env)
}

// UnmarshalEnv deserializes an environment written by MarshalEnv.
func UnmarshalEnv(data []byte) (*compiler.GlobalEnv, error) {
	var env compiler.GlobalEnv
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("session: unmarshal env: %w", err)
	}
	fillMaps(&env)
	return &env, nil
}

// MarshalImage serializes a session image to canonical CBOR.
func MarshalImage(img *Image) ([]byte, error) {
	return encMode.Marshal(img)
}

// UnmarshalImage deserializes an image written by MarshalImage.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("session: unmarshal image: %w", err)
	}
	if img.Env == nil {
		return nil, fmt.Errorf("session: image has no environment")
	}
	fillMaps(img.Env)
	return &img, nil
}

// Fingerprint identifies the state of env. Two environments have the same
// fingerprint exactly when they hold the same state.
func Fingerprint(env *compiler.GlobalEnv) (string, error) {
	data, err := MarshalEnv(env)
	if err != nil {
		return "", fmt.Errorf("session: fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// fillMaps restores the empty maps that NewGlobalEnv creates, so a decoded
// fresh environment compares equal to the one that was encoded.
func fillMaps(env *compiler.GlobalEnv) {
	fresh := compiler.NewGlobalEnv()
	if env.Types == nil {
		env.Types = fresh.Types
	}
	if env.Offsets == nil {
		env.Offsets = fresh.Offsets
	}
	if env.Aliases == nil {
		env.Aliases = fresh.Aliases
	}
	if env.ClassSizes == nil {
		env.ClassSizes = fresh.ClassSizes
	}
	if env.Classes == nil {
		env.Classes = fresh.Classes
	}
	if env.Funcs == nil {
		env.Funcs = fresh.Funcs
	}
	if env.MethodSigs == nil {
		env.MethodSigs = fresh.MethodSigs
	}
	if env.Bodies == nil {
		env.Bodies = fresh.Bodies
	}
}

func unmarshalType(data []byte, t *compiler.Type) error {
	if err := cbor.Unmarshal(data, t); err != nil {
		return fmt.Errorf("session: unmarshal type: %w", err)
	}
	return nil
}
