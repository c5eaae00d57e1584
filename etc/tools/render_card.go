package main

import (
	"fmt"
	"os"

	"wave-portal/internal/features/celebrate"
)

// go run etc/tools/render_card.go
// in etc/cards/<hash>.png
func main() {
	fmt.Println("Rendering test celebration card...")

	card := celebrate.Card{
		TxHash:      "0x04a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f",
		Message:     "gm from the wave portal",
		ExplorerURL: "https://voyager.online/tx/0x04a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f",
	}
	path, err := celebrate.SavePNG("etc/cards", card)
	if err != nil {
		fmt.Printf("Error rendering card: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Card rendered successfully: %s\n", path)
	fmt.Println("Open the file to see the result!")
}
