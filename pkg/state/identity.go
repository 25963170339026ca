package state

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"strings"
)

// appIdentity fingerprints the running application. Two processes with
// the same working directory, executable and argv are treated as the
// same application and share persisted state.
type appIdentity struct {
	cwd  string
	exe  string
	args []string
}

func currentIdentity() appIdentity {
	cwd, _ := os.Getwd()
	exe, _ := os.Executable()
	return appIdentity{cwd: cwd, exe: exe, args: os.Args}
}

// Info returns the identity parts in a stable order.
func (a appIdentity) Info() []string {
	parts := make([]string, 0, 2+len(a.args))
	parts = append(parts, a.cwd, a.exe)
	return append(parts, a.args...)
}

// Hash returns the hex SHA-1 of the joined identity parts.
func (a appIdentity) Hash() string {
	sum := sha1.Sum([]byte(strings.Join(a.Info(), ":")))
	return hex.EncodeToString(sum[:])
}
