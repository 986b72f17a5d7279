package main

import "github.com/Aleksei-Kutuzov/LLMmap/cmd"

func main() {
	cmd.Execute()
}
