package main

import "github.com/HungNguyenBa1811/ai-chat-4/cmd"

func main() {
	cmd.Execute()
}
