// Command bloglist serves the blog list REST API and, when configured, its
// gRPC counterpart.
package main

import (
	"log"

	"github.com/patric-chuzhbe/bloglist/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		panic(err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		log.Println("bloglist stopped with error:", err)
	}
}
