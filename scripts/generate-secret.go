// Package main is a development utility for generating a JWT signing secret.
// It prints a random secret alongside a ready-to-paste export line so
// developers can bring up a local server without inventing a weak secret by
// hand. Production deployments should source CSC_JWT_SECRET from a secret
// manager instead.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal(err)
	}

	secret := base64.RawURLEncoding.EncodeToString(buf)

	fmt.Println("==========================================================")
	fmt.Println("JWT Secret Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nSecret: %s\n", secret)
	fmt.Println("\nShell:")
	fmt.Printf("\n  export CSC_JWT_SECRET=%s\n", secret)
	fmt.Println("\n==========================================================")
}
