package main

import "github.com/IbrahimO9/discord-music-bot/cmd"

func main() {
	cmd.Execute()
}
