package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lnbridge.node.v1.Node"

// Method names.
const (
	MethodNodeID            = "NodeID"
	MethodListChannels      = "ListChannels"
	MethodListPeers         = "ListPeers"
	MethodConnectPeer       = "ConnectPeer"
	MethodOpenChannel       = "OpenChannel"
	MethodCloseChannel      = "CloseChannel"
	MethodNewOnchainAddress = "NewOnchainAddress"
	MethodCreateInvoice     = "CreateInvoice"
	MethodPayInvoice        = "PayInvoice"
	MethodSendKeysend       = "SendKeysend"
	MethodTriggerEvent      = "TriggerEvent"
	MethodListEvents        = "ListEvents"
	MethodSubscribeEvents   = "SubscribeEvents"
)

// NodeServer is the server API for the node service. Every message is a
// google.protobuf.Struct.
type NodeServer interface {
	NodeID(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListChannels(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPeers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConnectPeer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenChannel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseChannel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NewOnchainAddress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateInvoice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PayInvoice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendKeysend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TriggerEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubscribeEvents(*structpb.Struct, grpc.ServerStream) error
}

type unaryCall func(NodeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var unaryMethods = map[string]unaryCall{
	MethodNodeID:            NodeServer.NodeID,
	MethodListChannels:      NodeServer.ListChannels,
	MethodListPeers:         NodeServer.ListPeers,
	MethodConnectPeer:       NodeServer.ConnectPeer,
	MethodOpenChannel:       NodeServer.OpenChannel,
	MethodCloseChannel:      NodeServer.CloseChannel,
	MethodNewOnchainAddress: NodeServer.NewOnchainAddress,
	MethodCreateInvoice:     NodeServer.CreateInvoice,
	MethodPayInvoice:        NodeServer.PayInvoice,
	MethodSendKeysend:       NodeServer.SendKeysend,
	MethodTriggerEvent:      NodeServer.TriggerEvent,
	MethodListEvents:        NodeServer.ListEvents,
}

// FullMethod returns the gRPC path of a method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryHandler(name string, call unaryCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			out, err := call(srv.(NodeServer), ctx, req.(*structpb.Struct))
			if err != nil {
				return nil, toStatus(err)
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return toStatus(srv.(NodeServer).SubscribeEvents(in, stream))
}

// ServiceDesc describes the node service for grpc.Server.RegisterService.
func ServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*NodeServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    MethodSubscribeEvents,
			Handler:       subscribeEventsHandler,
			ServerStreams: true,
		}},
		Metadata: "lnbridge/node/v1/node.proto",
	}
	for name, call := range unaryMethods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(name, call),
		})
	}
	return desc
}

// SubscribeEvents streams dispatched events until the client goes away.
func (s *Service) SubscribeEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	return s.subscribe(stream.Context(), req, func(ev domain.Event) error {
		msg, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		return stream.SendMsg(msg)
	})
}
