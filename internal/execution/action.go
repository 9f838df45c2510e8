package execution

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func NewExecutionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "exec-unknown"
	}
	return fmt.Sprintf("exec_%s", hex.EncodeToString(b))
}
