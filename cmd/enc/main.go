// enc cifra/descifra valores con la master key del vault. Útil para
// sembrar credenciales a mano o inspeccionar una fila.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	sec "github.com/swayz032/Aspire-Desktop-sub001/internal/security/secretbox"
)

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 3 {
		log.Fatal("usage: enc <encrypt|decrypt> <value>")
	}
	if !sec.Ready() {
		log.Fatal("VAULT_MASTER_KEY not set")
	}

	switch os.Args[1] {
	case "encrypt":
		out, err := sec.Encrypt(os.Args[2])
		if err != nil {
			log.Fatalf("encrypt: %v", err)
		}
		fmt.Println(out)
	case "decrypt":
		out, err := sec.Decrypt(os.Args[2])
		if err != nil {
			log.Fatalf("decrypt: %v", err)
		}
		fmt.Println(out)
	default:
		log.Fatalf("unknown action %q. Use: encrypt | decrypt", os.Args[1])
	}
}
