package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/pywat/compiler"
)

// HashProgram computes the SHA-256 content hash of a program.
//
// The hash is computed over a deterministic serialization of the program's
// normalized AST. Positions, parentheses and local variable names do not
// contribute, so reformatting a program or renaming its locals keeps the
// hash.
//
// Only programs that type check are identified: a name declared twice in
// one body takes a single slot, so it hashes like two distinct names.
func HashProgram(prog *compiler.Program) [32]byte {
	return sha256.Sum256(Serialize(NormalizeProgram(prog)))
}

// Hex returns the lowercase hex form of a hash.
func Hex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
