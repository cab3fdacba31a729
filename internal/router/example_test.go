package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/patric-chuzhbe/bloglist/internal/models"
)

func ExampleRouter_GetPing() {
	env := setupTestRouter(nil)
	defer env.server.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/ping", nil)
	if err != nil {
		panic(err)
	}

	client := &http.Client{}

	resp, err := client.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	fmt.Println("Status Code:", resp.StatusCode)

	// Output:
	// Status Code: 200
}

func ExampleRouter_PostApiblogs() {
	env := setupTestRouter(nil)
	defer env.server.Close()

	token := env.seedUser(nil, "mluukkai")

	payload := map[string]string{
		"title": "Type wars",
		"url":   "http://blog.cleancoder.com/uncle-bob/2016/05/01/TypeWars.html",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/blogs", bytes.NewReader(body))
	if err != nil {
		panic(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	client := &http.Client{}

	resp, err := client.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	var created models.BlogView
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		panic(err)
	}

	fmt.Println("Status Code:", resp.StatusCode)
	fmt.Println("Likes:", created.Likes)
	fmt.Println("Owner:", created.User.Username)

	// Output:
	// Status Code: 201
	// Likes: 0
	// Owner: mluukkai
}

func ExampleRouter_DeleteApiblogsID() {
	env := setupTestRouter(nil)
	defer env.server.Close()

	token, blogs := env.seedBlogs(nil, "root")

	client := &http.Client{}

	anonymous, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/blogs/"+blogs[0].ID, nil)
	if err != nil {
		panic(err)
	}
	resp, err := client.Do(anonymous)
	if err != nil {
		panic(err)
	}
	resp.Body.Close()
	fmt.Println("Without token:", resp.StatusCode)

	owned, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/blogs/"+blogs[0].ID, nil)
	if err != nil {
		panic(err)
	}
	owned.Header.Set("Authorization", token)
	resp, err = client.Do(owned)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(err)
	}

	fmt.Println("With owner token:", resp.StatusCode)
	fmt.Print(string(body))

	// Output:
	// Without token: 401
	// With owner token: 200
	// {"message":"blog 'React patterns' deleted"}
}
