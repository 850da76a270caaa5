package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const (
	SecretKeyBytesLen    = 32
	minSecretKeyBytesLen = 16
)

// Prints SECRET_KEY used to sign OAuth state, ready to be appended to '.env'
func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	size := fs.IntP("bytes", "n", SecretKeyBytesLen, "Key length in bytes")
	bare := fs.Bool("bare", false, "Print the key only, without SECRET_KEY= prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < minSecretKeyBytesLen {
		return fmt.Errorf("key has to be at least %d bytes, got %d", minSecretKeyBytesLen, *size)
	}

	b := make([]byte, *size)
	if _, err := rand.Read(b); err != nil {
		return err
	}

	key := hex.EncodeToString(b)
	if !*bare {
		key = "SECRET_KEY=" + key
	}

	_, err := fmt.Fprintln(w, key)
	return err
}
