package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "bloglist.BlogService"

	ListBlogsFullMethodName  = "/bloglist.BlogService/ListBlogs"
	CreateBlogFullMethodName = "/bloglist.BlogService/CreateBlog"
	UpdateBlogFullMethodName = "/bloglist.BlogService/UpdateBlog"
	DeleteBlogFullMethodName = "/bloglist.BlogService/DeleteBlog"
	LoginFullMethodName      = "/bloglist.BlogService/Login"
	PingFullMethodName       = "/bloglist.BlogService/Ping"
)

// AllMethods lists the full names of every BlogService method.
var AllMethods = []string{
	ListBlogsFullMethodName,
	CreateBlogFullMethodName,
	UpdateBlogFullMethodName,
	DeleteBlogFullMethodName,
	LoginFullMethodName,
	PingFullMethodName,
}

// BlogServiceServer is the server API of bloglist.BlogService.
type BlogServiceServer interface {
	ListBlogs(context.Context, *ListBlogsRequest) (*ListBlogsResponse, error)
	CreateBlog(context.Context, *CreateBlogRequest) (*CreateBlogResponse, error)
	UpdateBlog(context.Context, *UpdateBlogRequest) (*UpdateBlogResponse, error)
	DeleteBlog(context.Context, *DeleteBlogRequest) (*DeleteBlogResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

// unaryHandler adapts a typed BlogServiceServer method to grpc.MethodDesc.
func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(BlogServiceServer, context.Context, *Req) (*Resp, error),
) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(
		srv interface{},
		ctx context.Context,
		dec func(interface{}) error,
		interceptor grpc.UnaryServerInterceptor,
	) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BlogServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(BlogServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BlogServiceDesc is the grpc.ServiceDesc for bloglist.BlogService.
var BlogServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BlogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListBlogs",
			Handler:    unaryHandler(ListBlogsFullMethodName, BlogServiceServer.ListBlogs),
		},
		{
			MethodName: "CreateBlog",
			Handler:    unaryHandler(CreateBlogFullMethodName, BlogServiceServer.CreateBlog),
		},
		{
			MethodName: "UpdateBlog",
			Handler:    unaryHandler(UpdateBlogFullMethodName, BlogServiceServer.UpdateBlog),
		},
		{
			MethodName: "DeleteBlog",
			Handler:    unaryHandler(DeleteBlogFullMethodName, BlogServiceServer.DeleteBlog),
		},
		{
			MethodName: "Login",
			Handler:    unaryHandler(LoginFullMethodName, BlogServiceServer.Login),
		},
		{
			MethodName: "Ping",
			Handler:    unaryHandler(PingFullMethodName, BlogServiceServer.Ping),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bloglist.proto",
}

func RegisterBlogServiceServer(s grpc.ServiceRegistrar, srv BlogServiceServer) {
	s.RegisterService(&BlogServiceDesc, srv)
}

// BlogServiceClient calls bloglist.BlogService with the JSON codec.
type BlogServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBlogServiceClient(cc grpc.ClientConnInterface) *BlogServiceClient {
	return &BlogServiceClient{cc: cc}
}

func invoke[Resp any](
	ctx context.Context,
	cc grpc.ClientConnInterface,
	fullMethod string,
	in interface{},
	opts []grpc.CallOption,
) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *BlogServiceClient) ListBlogs(ctx context.Context, in *ListBlogsRequest, opts ...grpc.CallOption) (*ListBlogsResponse, error) {
	return invoke[ListBlogsResponse](ctx, c.cc, ListBlogsFullMethodName, in, opts)
}

func (c *BlogServiceClient) CreateBlog(ctx context.Context, in *CreateBlogRequest, opts ...grpc.CallOption) (*CreateBlogResponse, error) {
	return invoke[CreateBlogResponse](ctx, c.cc, CreateBlogFullMethodName, in, opts)
}

func (c *BlogServiceClient) UpdateBlog(ctx context.Context, in *UpdateBlogRequest, opts ...grpc.CallOption) (*UpdateBlogResponse, error) {
	return invoke[UpdateBlogResponse](ctx, c.cc, UpdateBlogFullMethodName, in, opts)
}

func (c *BlogServiceClient) DeleteBlog(ctx context.Context, in *DeleteBlogRequest, opts ...grpc.CallOption) (*DeleteBlogResponse, error) {
	return invoke[DeleteBlogResponse](ctx, c.cc, DeleteBlogFullMethodName, in, opts)
}

func (c *BlogServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, LoginFullMethodName, in, opts)
}

func (c *BlogServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, PingFullMethodName, in, opts)
}
