package detector

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names on the detection server. Messages travel as
// google.protobuf.Struct.
const (
	ServiceName  = "eyeguard.detect.v1.FaceDetection"
	DetectMethod = "/" + ServiceName + "/Detect"
)

// Request is the decoded form of a detection call.
type Request struct {
	Image   Image
	Options Options
}

func encodeRequest(img Image, opts Options) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"image":            img.Data,
		"width":            img.Width,
		"height":           img.Height,
		"rotation":         img.Rotation,
		"performance_mode": opts.Mode.String(),
		"landmarks":        opts.Landmarks,
		"contours":         opts.Contours,
		"classification":   opts.Classification,
		"min_face_size":    opts.MinFaceSize,
	})
}

func decodeRequest(s *structpb.Struct) (Request, error) {
	f := s.GetFields()
	data, err := base64.StdEncoding.DecodeString(f["image"].GetStringValue())
	if err != nil {
		return Request{}, fmt.Errorf("image: %w", err)
	}
	mode, err := ParseMode(f["performance_mode"].GetStringValue())
	if err != nil {
		return Request{}, err
	}
	return Request{
		Image: Image{
			Data:     data,
			Width:    int(f["width"].GetNumberValue()),
			Height:   int(f["height"].GetNumberValue()),
			Rotation: int(f["rotation"].GetNumberValue()),
		},
		Options: Options{
			Mode:           mode,
			Landmarks:      f["landmarks"].GetBoolValue(),
			Contours:       f["contours"].GetBoolValue(),
			Classification: f["classification"].GetBoolValue(),
			MinFaceSize:    f["min_face_size"].GetNumberValue(),
		},
	}, nil
}

func encodeFaces(faces []Box) (*structpb.Struct, error) {
	list := make([]any, 0, len(faces))
	for _, b := range faces {
		list = append(list, map[string]any{
			"x": b.X, "y": b.Y, "width": b.Width, "height": b.Height,
		})
	}
	return structpb.NewStruct(map[string]any{"faces": list})
}

func decodeFaces(s *structpb.Struct) ([]Box, error) {
	v, ok := s.GetFields()["faces"]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("faces: want list, got %T", v.GetKind())
	}
	faces := make([]Box, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		obj := item.GetStructValue()
		if obj == nil {
			return nil, fmt.Errorf("faces[%d]: want object", i)
		}
		f := obj.GetFields()
		faces = append(faces, Box{
			X:      f["x"].GetNumberValue(),
			Y:      f["y"].GetNumberValue(),
			Width:  f["width"].GetNumberValue(),
			Height: f["height"].GetNumberValue(),
		})
	}
	return faces, nil
}

// Handler serves detection calls.
type Handler func(ctx context.Context, req Request) ([]Box, error)

// Register exposes h on s under ServiceName. Tests use it to stand in for the
// detection service.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Detect",
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				req, err := decodeRequest(in)
				if err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				faces, err := h(ctx, req)
				if err != nil {
					return nil, err
				}
				return encodeFaces(faces)
			},
		}},
	}, h)
}
