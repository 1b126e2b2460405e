package glaas

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/roar-ml/roar/internal/rerr"
)

func unixNow() int64 { return time.Now().Unix() }

// signPayload shells out to `ssh-keygen -Y sign -n glaas` the way the
// reference client does, rather than reimplementing SSH signature
// framing. Returns the base64 of the signature blob with the PEM armor
// stripped.
func signPayload(privateKeyPath, payload string) (string, error) {
	tmp, err := os.CreateTemp("", "roar-sign-*.txt")
	if err != nil {
		return "", rerr.Wrap(rerr.KindSigning, "create signing temp file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(payload); err != nil {
		tmp.Close()
		return "", rerr.Wrap(rerr.KindSigning, "write signing payload", err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ssh-keygen", "-Y", "sign", "-n", sigNamespace, "-f", privateKeyPath, tmp.Name())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", rerr.Wrap(rerr.KindSigning, "ssh-keygen sign failed: "+stderr.String(), err)
	}

	sigBody, err := os.ReadFile(tmp.Name() + ".sig")
	if err != nil {
		return "", rerr.Wrap(rerr.KindSigning, "read ssh-keygen signature output", err)
	}
	defer os.Remove(tmp.Name() + ".sig")

	armor := extractArmor(string(sigBody))
	raw, err := base64.StdEncoding.DecodeString(armor)
	if err != nil {
		return "", rerr.Wrap(rerr.KindSigning, "decode ssh signature armor", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// extractArmor strips the "-----BEGIN SSH SIGNATURE-----" / "-----END"
// markers ssh-keygen wraps its output in, returning the base64 body.
func extractArmor(pem string) string {
	lines := strings.Split(pem, "\n")
	var body strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		body.WriteString(line)
	}
	return body.String()
}
