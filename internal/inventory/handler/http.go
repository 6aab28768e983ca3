package handler

import (
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

type HTTPHandler struct {
	uc       inventory.UseCase
	resolver *SelectionResolver
	logger   logger.ZapLogger
}

func NewHTTPHandler(uc inventory.UseCase, resolver *SelectionResolver, log logger.ZapLogger) *HTTPHandler {
	return &HTTPHandler{
		uc:       uc,
		resolver: resolver,
		logger:   log,
	}
}

func (h *HTTPHandler) RegisterRoutes(app fiber.Router) {
	api := app.Group("/api/v1/inventory")
	api.Post("/", h.CreateInventory)
	api.Get("/", h.ListInventory)
	api.Get("/:productId", h.GetProductInventory)
	api.Post("/:productId/actions", h.ApplyInventoryAction)
	api.Get("/:productId/movements", h.ListMovements)
}

type createInventoryRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
}

type applyActionRequest struct {
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
	Reserved *int   `json:"reserved"`
}

func (h *HTTPHandler) CreateInventory(c *fiber.Ctx) error {
	var req createInventoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	inv, err := h.uc.CreateInventory(c.UserContext(), &dto.CreateInventoryInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Reserved:  req.Reserved,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toItem(inv))
}

func (h *HTTPHandler) ListInventory(c *fiber.Ctx) error {
	sel, err := h.selection(c)
	if err != nil {
		return h.fail(c, err)
	}

	page, err := h.uc.ListInventory(c.UserContext(), &dto.ListInventoryInput{
		Filters: dto.InventoryFilters{
			ProductID:         utils.CopyString(c.Query("product_id")),
			LowStock:          c.QueryBool("low_stock"),
			LowStockThreshold: c.QueryInt("low_stock_threshold"),
			Page:              c.QueryInt("page", 1),
			PageSize:          c.QueryInt("page_size", 10),
		},
		Selection:   sel,
		RequestRate: h.resolver.RequestRate(),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(page)
}

func (h *HTTPHandler) GetProductInventory(c *fiber.Ctx) error {
	sel, err := h.selection(c)
	if err != nil {
		return h.fail(c, err)
	}

	inv, err := h.uc.GetProductInventory(c.UserContext(), productID(c), sel)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(toItem(inv))
}

func (h *HTTPHandler) ApplyInventoryAction(c *fiber.Ctx) error {
	var req applyActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	sel, err := h.selection(c)
	if err != nil {
		return h.fail(c, err)
	}

	inv, err := h.uc.ApplyInventoryAction(c.UserContext(), &dto.ApplyActionInput{
		ProductID: productID(c),
		Action:    req.Action,
		Quantity:  req.Quantity,
		Reserved:  req.Reserved,
		Selection: sel,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(toItem(inv))
}

func (h *HTTPHandler) ListMovements(c *fiber.Ctx) error {
	items, total, err := h.uc.ListMovements(c.UserContext(), &dto.MovementFilters{
		ProductID:    productID(c),
		MovementType: utils.CopyString(c.Query("movement_type")),
		Algorithm:    utils.CopyString(c.Query("algorithm")),
		Page:         c.QueryInt("page", 1),
		PageSize:     c.QueryInt("page_size", 10),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"items": items,
		"total": total,
	})
}

func (h *HTTPHandler) selection(c *fiber.Ctx) (variant.Selection, error) {
	return h.resolver.Resolve(c.UserContext(), 0, func(key string) string {
		return utils.CopyString(c.Get(key))
	})
}

// productID copies the path parameter out of the request buffer, which
// fasthttp reuses once the handler returns. Abandoned applies and
// registered warmup loaders keep the value long after that.
func productID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("productId"))
}

func (h *HTTPHandler) fail(c *fiber.Ctx, err error) error {
	code := inventory.HTTPStatus(err)
	if code >= fiber.StatusInternalServerError {
		h.logger.Error("inventory request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func toItem(inv *model.Inventory) dto.InventoryItem {
	return dto.InventoryItem{
		ProductID: inv.ProductID,
		Quantity:  inv.Quantity,
		Reserved:  inv.ReservedQuantity,
		Available: inv.AvailableQuantity,
	}
}
