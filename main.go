package main

import "github.com/andresmejia3/framewall/cmd"

func main() {
	cmd.Execute()
}
