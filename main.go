package main

import "inboxagent/internal/app"

func main() {
	app.Main()
}
