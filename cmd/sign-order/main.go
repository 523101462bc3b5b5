// sign-order builds and signs a submission body for POST /api/v1/orders.
// It encrypts the plaintext fields with the plain devnet scheme; against a
// CKKS node the ciphertexts must come from the authority's public key
// instead.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/api"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/crypto"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
)

func main() {
	var (
		keyHex = flag.String("key", "", "hex private key (empty: generate)")
		asset  = flag.Uint64("asset", 1, "asset id")
		amount = flag.Uint64("amount", 100, "order amount")
		price  = flag.Uint64("price", 50, "order price")
		expiry = flag.Uint64("expiry", 0, "expiry block height (0: never)")
		ask    = flag.Bool("ask", true, "ask (sell) side; false for bid")
		nonce  = flag.Uint64("nonce", 1, "signature nonce")
	)
	flag.Parse()

	var signer *crypto.Signer
	var err error
	if *keyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	} else {
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Submitter: %s\n\n", signer.Address().Hex())

	scheme := fhe.NewPlain()
	encrypt := func(v uint64) []byte {
		ct, err := scheme.EncryptUint64(v)
		if err != nil {
			fmt.Printf("Error encrypting: %v\n", err)
			os.Exit(1)
		}
		b, err := ct.Bytes()
		if err != nil {
			fmt.Printf("Error serializing: %v\n", err)
			os.Exit(1)
		}
		return b
	}

	req := api.SubmitOrderRequest{
		AssetID: encrypt(*asset),
		Amount:  encrypt(*amount),
		Price:   encrypt(*price),
		IsAsk:   *ask,
		Nonce:   *nonce,
	}
	if *expiry > 0 {
		req.Expiry = encrypt(*expiry)
	}

	msg := api.OrderSigningMessage(req.AssetID, req.Amount, req.Price, req.Expiry, req.IsAsk, req.Nonce)
	sig, err := signer.SignMessage(msg)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	req.Signature = sig

	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("To submit this order:")
	fmt.Println("  POST http://localhost:8080/api/v1/orders")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(body))
}
