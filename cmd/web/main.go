package main

import "messaging_backend/internal/app"

func main() {
	app.Run()
}
