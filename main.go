package main

import "github.com/imagesieve/imagesieve/cmd"

func main() {
	cmd.Execute()
}
