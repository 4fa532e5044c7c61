package access

import (
	"crypto/rand"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	groupLen     = 4
	groupCount   = 3
)

// biasLimit is the largest multiple of len(codeAlphabet) that fits in a
// byte; bytes at or above it are re-drawn to keep the pick unbiased.
const biasLimit = 252

var randReader io.Reader = rand.Reader // mockable

// generateCode draws a fresh <PREFIX>-XXXX-XXXX-XXXX code from the
// crypto/rand source. 12 characters over [A-Z0-9] (~62 bits) make guessing
// infeasible within any validity window.
func generateCode(role Role) (string, error) {
	groups := make([]string, 0, groupCount+1)
	groups = append(groups, role.Prefix())
	for i := 0; i < groupCount; i++ {
		group, err := randomGroup(groupLen)
		if err != nil {
			return "", errors.Wrap(err, "reading random bytes")
		}
		groups = append(groups, group)
	}
	return strings.Join(groups, "-"), nil
}

func randomGroup(n int) (string, error) {
	var sb strings.Builder
	var buf [1]byte
	for sb.Len() < n {
		if _, err := io.ReadFull(randReader, buf[:]); err != nil {
			return "", err
		}
		if buf[0] >= biasLimit {
			continue
		}
		sb.WriteByte(codeAlphabet[int(buf[0])%len(codeAlphabet)])
	}
	return sb.String(), nil
}
