package grpc_control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type Empty struct{}

type WatchStatus struct {
	Name         string `json:"name"`
	Domain       string `json:"domain,omitempty"`
	ServiceURL   string `json:"service_url,omitempty"`
	StreamState  string `json:"stream_state"`
	IsRunning    bool   `json:"is_running"`
	AccountCount int32  `json:"account_count"`
	RequestCount int32  `json:"request_count"`
}

type ListWatchesResponse struct {
	Watches []*WatchStatus `json:"watches"`
}

type AddWatchRequest struct {
	Name       string   `json:"name"`
	Domain     string   `json:"domain,omitempty"`
	ServiceURL string   `json:"service_url,omitempty"`
	Accounts   []string `json:"accounts"`
}

type WatchControlRequest struct {
	Name string `json:"name"`
}

type WatchControlResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	CurrentState string `json:"current_state"`
}

type UpdateAccountsRequest struct {
	Name     string   `json:"name"`
	Accounts []string `json:"accounts"`
}

type UpdateAccountsResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccountCount int32  `json:"account_count"`
}

type StatusResponse struct {
	Name    string         `json:"name"`
	Watches []*WatchStatus `json:"watches"`
}

// -----------------------------------------------------------------------------
// Service definition
// -----------------------------------------------------------------------------

const serviceName = "multisig.Control"

// ControlServer is the server API for the multisig.Control service.
type ControlServer interface {
	ListWatches(context.Context, *Empty) (*ListWatchesResponse, error)
	AddWatch(context.Context, *AddWatchRequest) (*WatchControlResponse, error)
	RemoveWatch(context.Context, *WatchControlRequest) (*WatchControlResponse, error)
	UpdateAccounts(context.Context, *UpdateAccountsRequest) (*UpdateAccountsResponse, error)
	StartWatch(context.Context, *WatchControlRequest) (*WatchControlResponse, error)
	StopWatch(context.Context, *WatchControlRequest) (*WatchControlResponse, error)
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
}

// UnimplementedControlServer can be embedded to keep forward compatibility.
type UnimplementedControlServer struct{}

func (UnimplementedControlServer) ListWatches(context.Context, *Empty) (*ListWatchesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListWatches not implemented")
}
func (UnimplementedControlServer) AddWatch(context.Context, *AddWatchRequest) (*WatchControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AddWatch not implemented")
}
func (UnimplementedControlServer) RemoveWatch(context.Context, *WatchControlRequest) (*WatchControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveWatch not implemented")
}
func (UnimplementedControlServer) UpdateAccounts(context.Context, *UpdateAccountsRequest) (*UpdateAccountsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateAccounts not implemented")
}
func (UnimplementedControlServer) StartWatch(context.Context, *WatchControlRequest) (*WatchControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StartWatch not implemented")
}
func (UnimplementedControlServer) StopWatch(context.Context, *WatchControlRequest) (*WatchControlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StopWatch not implemented")
}
func (UnimplementedControlServer) GetStatus(context.Context, *Empty) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

// RegisterControlServer attaches srv to a grpc server.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&Control_ServiceDesc, srv)
}

// unaryHandler adapts one typed method to the grpc method handler shape.
func unaryHandler[Req any, Resp any](method string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var Control_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListWatches", ControlServer.ListWatches),
		unaryHandler("AddWatch", ControlServer.AddWatch),
		unaryHandler("RemoveWatch", ControlServer.RemoveWatch),
		unaryHandler("UpdateAccounts", ControlServer.UpdateAccounts),
		unaryHandler("StartWatch", ControlServer.StartWatch),
		unaryHandler("StopWatch", ControlServer.StopWatch),
		unaryHandler("GetStatus", ControlServer.GetStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "multisig/control",
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// ControlClient calls a remote multisig.Control service using the JSON codec.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *ControlClient, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) ListWatches(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListWatchesResponse, error) {
	return invoke[ListWatchesResponse](ctx, c, "ListWatches", in, opts)
}

func (c *ControlClient) AddWatch(ctx context.Context, in *AddWatchRequest, opts ...grpc.CallOption) (*WatchControlResponse, error) {
	return invoke[WatchControlResponse](ctx, c, "AddWatch", in, opts)
}

func (c *ControlClient) RemoveWatch(ctx context.Context, in *WatchControlRequest, opts ...grpc.CallOption) (*WatchControlResponse, error) {
	return invoke[WatchControlResponse](ctx, c, "RemoveWatch", in, opts)
}

func (c *ControlClient) UpdateAccounts(ctx context.Context, in *UpdateAccountsRequest, opts ...grpc.CallOption) (*UpdateAccountsResponse, error) {
	return invoke[UpdateAccountsResponse](ctx, c, "UpdateAccounts", in, opts)
}

func (c *ControlClient) StartWatch(ctx context.Context, in *WatchControlRequest, opts ...grpc.CallOption) (*WatchControlResponse, error) {
	return invoke[WatchControlResponse](ctx, c, "StartWatch", in, opts)
}

func (c *ControlClient) StopWatch(ctx context.Context, in *WatchControlRequest, opts ...grpc.CallOption) (*WatchControlResponse, error) {
	return invoke[WatchControlResponse](ctx, c, "StopWatch", in, opts)
}

func (c *ControlClient) GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "GetStatus", in, opts)
}
