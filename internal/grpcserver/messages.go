package grpcserver

import "github.com/patric-chuzhbe/bloglist/internal/models"

type ListBlogsRequest struct{}

type ListBlogsResponse struct {
	Blogs []models.BlogView `json:"blogs"`
}

type CreateBlogRequest struct {
	Blog models.CreateBlogRequest `json:"blog"`
}

type CreateBlogResponse struct {
	Blog models.BlogView `json:"blog"`
}

type UpdateBlogRequest struct {
	ID   string                   `json:"id"`
	Blog models.UpdateBlogRequest `json:"blog"`
}

type UpdateBlogResponse struct{}

type DeleteBlogRequest struct {
	ID string `json:"id"`
}

type DeleteBlogResponse struct {
	Message string `json:"message"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type PingRequest struct{}

type PingResponse struct {
	OK bool `json:"ok"`
}
