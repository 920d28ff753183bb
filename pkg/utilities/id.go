package utilities

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewRunID returns a KSUID used to correlate every log line of one reconciliation run.
func NewRunID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID string using a node ID from
// the environment variable SNOWFLAKE_NODE (default 1). If the node cannot
// be initialized it falls back to a KSUID string.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				nodeID = v
			}
		}
		n, err := snowflake.NewNode(nodeID)
		if err == nil {
			node = n
		}
	})
	if node == nil {
		return NewRunID()
	}
	return node.Generate().String()
}

// NewSeedEmail builds a unique address for a generated directory user.
func NewSeedEmail(domain string) string {
	domain = strings.TrimPrefix(strings.TrimSpace(domain), "@")
	if domain == "" {
		domain = "example.com"
	}
	return fmt.Sprintf("seed-%s@%s", NewSnowflakeID(), domain)
}

// NewSeedPassword returns a random password that satisfies the provider's
// default strength policy (lower, upper, digit, symbol).
func NewSeedPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return "Aa1!" + base64.RawURLEncoding.EncodeToString(buf), nil
}
