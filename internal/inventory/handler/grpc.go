package handler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const InventoryServiceName = "omnipos.inventory.v1.InventoryService"

// InventoryServiceServer is the gRPC surface of the service. Requests and
// responses are google.protobuf.Struct messages.
type InventoryServiceServer interface {
	ApplyInventoryAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProductInventory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListInventory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateInventory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMovements(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var InventoryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ApplyInventoryAction", InventoryServiceServer.ApplyInventoryAction),
		unary("GetProductInventory", InventoryServiceServer.GetProductInventory),
		unary("ListInventory", InventoryServiceServer.ListInventory),
		unary("CreateInventory", InventoryServiceServer.CreateInventory),
		unary("ListMovements", InventoryServiceServer.ListMovements),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/inventory/v1/inventory.proto",
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&InventoryService_ServiceDesc, srv)
}

type unaryCall func(InventoryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + InventoryServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InventoryServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(InventoryServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// InventoryServiceClient calls InventoryServiceServer over a connection.
type InventoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryServiceClient(cc grpc.ClientConnInterface) *InventoryServiceClient {
	return &InventoryServiceClient{cc: cc}
}

// Call invokes method with req and returns the decoded response.
func (c *InventoryServiceClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+InventoryServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type InventoryHandler struct {
	uc       inventory.UseCase
	resolver *SelectionResolver
	logger   logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, resolver *SelectionResolver, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:       uc,
		resolver: resolver,
		logger:   log,
	}
}

func (h *InventoryHandler) ApplyInventoryAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID := stringField(req, "product_id")
	if productID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	quantity, _, err := intField(req, "quantity")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	reserved, hasReserved, err := intField(req, "reserved")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	sel, err := h.selection(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}

	input := &dto.ApplyActionInput{
		ProductID: productID,
		Action:    stringField(req, "action"),
		Quantity:  quantity,
		Selection: sel,
	}
	if hasReserved {
		input.Reserved = &reserved
	}

	inv, err := h.uc.ApplyInventoryAction(ctx, input)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return structpb.NewStruct(mapInventory(inv))
}

func (h *InventoryHandler) GetProductInventory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID := stringField(req, "product_id")
	if productID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	sel, err := h.selection(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}

	inv, err := h.uc.GetProductInventory(ctx, productID, sel)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return structpb.NewStruct(mapInventory(inv))
}

func (h *InventoryHandler) ListInventory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	threshold, _, err := intField(req, "low_stock_threshold")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	page, pageSize, err := paging(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	sel, err := h.selection(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}

	result, err := h.uc.ListInventory(ctx, &dto.ListInventoryInput{
		Filters: dto.InventoryFilters{
			ProductID:         stringField(req, "product_id"),
			LowStock:          req.GetFields()["low_stock"].GetBoolValue(),
			LowStockThreshold: threshold,
			Page:              page,
			PageSize:          pageSize,
		},
		Selection:   sel,
		RequestRate: h.resolver.RequestRate(),
	})
	if err != nil {
		return nil, h.toStatus(err)
	}

	items := make([]interface{}, len(result.Items))
	for i, item := range result.Items {
		items[i] = map[string]interface{}{
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"reserved":   item.Reserved,
			"available":  item.Available,
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"items": items,
		"total": result.Total,
		"stale": result.Stale,
	})
}

func (h *InventoryHandler) CreateInventory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	quantity, _, err := intField(req, "quantity")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	reserved, _, err := intField(req, "reserved")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	inv, err := h.uc.CreateInventory(ctx, &dto.CreateInventoryInput{
		ProductID: stringField(req, "product_id"),
		Quantity:  quantity,
		Reserved:  reserved,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return structpb.NewStruct(mapInventory(inv))
}

func (h *InventoryHandler) ListMovements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	page, pageSize, err := paging(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	items, total, err := h.uc.ListMovements(ctx, &dto.MovementFilters{
		ProductID:    stringField(req, "product_id"),
		MovementType: stringField(req, "movement_type"),
		Algorithm:    stringField(req, "algorithm"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}

	entries := make([]interface{}, len(items))
	for i, m := range items {
		entries[i] = mapMovement(&m)
	}
	return structpb.NewStruct(map[string]interface{}{
		"items": entries,
		"total": total,
	})
}

func (h *InventoryHandler) selection(ctx context.Context) (variant.Selection, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	return h.resolver.Resolve(ctx, 0, func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	})
}

func (h *InventoryHandler) toStatus(err error) error {
	code := inventory.GRPCCode(err)
	if code == codes.Internal {
		h.logger.Error("inventory request failed", zap.Error(err))
	}
	return status.Error(code, err.Error())
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// intField reads a whole number. Absent and null fields report ok=false.
func intField(s *structpb.Struct, key string) (int, bool, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return 0, false, nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false, fmt.Errorf("%s must be a whole number", key)
		}
		return int(n), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
}

func paging(req *structpb.Struct) (int, int, error) {
	page, _, err := intField(req, "page")
	if err != nil {
		return 0, 0, err
	}
	pageSize, _, err := intField(req, "page_size")
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func mapInventory(inv *model.Inventory) map[string]interface{} {
	return map[string]interface{}{
		"product_id": inv.ProductID,
		"quantity":   inv.Quantity,
		"reserved":   inv.ReservedQuantity,
		"available":  inv.AvailableQuantity,
		"updated_at": inv.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapMovement(m *model.InventoryMovement) map[string]interface{} {
	return map[string]interface{}{
		"id":              m.ID,
		"product_id":      m.ProductID,
		"movement_type":   m.MovementType,
		"algorithm":       m.Algorithm,
		"quantity_change": m.QuantityChange,
		"quantity_before": m.QuantityBefore,
		"quantity_after":  m.QuantityAfter,
		"reserved_before": m.ReservedBefore,
		"reserved_after":  m.ReservedAfter,
		"created_at":      m.CreatedAt.Format(time.RFC3339Nano),
	}
}
