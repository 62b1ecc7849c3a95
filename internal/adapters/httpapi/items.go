package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"itemcore/internal/item"
	"itemcore/pkg/domain"
)

type itemView struct {
	domain.Row
	Position       domain.Position   `json:"position"`
	Attributes     domain.Attributes `json:"attributes,omitempty"`
	ContentsLoaded bool              `json:"contents_loaded"`
	Contents       []domain.ItemID   `json:"contents,omitempty"`
}

func viewOf(it *item.Item) itemView {
	v := itemView{
		Row:            it.Row(),
		Position:       it.Position(),
		Attributes:     it.Attributes(),
		ContentsLoaded: it.ContentsLoaded(),
	}
	for _, child := range it.Contents(false) {
		v.Contents = append(v.Contents, child.ID())
	}
	return v
}

// withItem resolves :id to a referenced handle, runs fn and releases it.
func (s *server) withItem(c *gin.Context, fn func(it *item.Item)) {
	id, ok := itemIDParam(c, "id")
	if !ok {
		return
	}
	it, err := s.items.GetItem(c.Request.Context(), id, false)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer func() { _ = it.Release() }()
	fn(it)
}

func (s *server) getItem(c *gin.Context) {
	s.withItem(c, func(it *item.Item) {
		c.JSON(http.StatusOK, viewOf(it))
	})
}

type spawnRequest struct {
	TypeID     domain.TypeID     `json:"type_id" binding:"required"`
	OwnerID    domain.OwnerID    `json:"owner_id" binding:"required"`
	LocationID domain.ItemID     `json:"location_id" binding:"required"`
	Flag       domain.Flag       `json:"flag"`
	Quantity   uint32            `json:"quantity"`
	Singleton  bool              `json:"singleton"`
	Name       string            `json:"name"`
	Position   domain.Position   `json:"position"`
	CustomInfo string            `json:"custom_info"`
	Attributes domain.Attributes `json:"attributes"`
}

func (s *server) spawn(c *gin.Context) {
	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var data domain.ItemData
	if req.Singleton {
		data = domain.NewSingletonData(req.TypeID, req.OwnerID, req.LocationID, req.Flag, req.Name)
	} else {
		if req.Quantity == 0 {
			req.Quantity = 1
		}
		data = domain.NewStackData(req.TypeID, req.OwnerID, req.LocationID, req.Flag, req.Quantity)
		data.Name = req.Name
	}
	data.Position = req.Position
	data.CustomInfo = req.CustomInfo

	it, err := s.items.SpawnItemWithAttributes(c.Request.Context(), data, req.Attributes)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer func() { _ = it.Release() }()
	c.JSON(http.StatusCreated, viewOf(it))
}

func (s *server) deleteItem(c *gin.Context) {
	id, ok := itemIDParam(c, "id")
	if !ok {
		return
	}
	it, err := s.items.GetItem(c.Request.Context(), id, false)
	if err != nil {
		abortWithError(c, err)
		return
	}
	// Delete consumes the handle.
	if err := it.Delete(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) contents(c *gin.Context) {
	flag, ok := uintQuery(c, "flag", 16)
	if !ok {
		return
	}
	owner, ok := uintQuery(c, "owner", 32)
	if !ok {
		return
	}
	s.withItem(c, func(it *item.Item) {
		if err := it.LoadContents(c.Request.Context(), false); err != nil {
			abortWithError(c, err)
			return
		}
		rows := it.InventoryRowset(domain.Flag(flag), domain.OwnerID(owner))
		if rows == nil {
			rows = []domain.Row{}
		}
		c.JSON(http.StatusOK, gin.H{"item_id": it.ID(), "rows": rows})
	})
}

type moveRequest struct {
	LocationID domain.ItemID `json:"location_id" binding:"required"`
	Flag       domain.Flag   `json:"flag"`
	Notify     *bool         `json:"notify"`
}

func (s *server) move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withItem(c, func(it *item.Item) {
		if err := it.Move(c.Request.Context(), req.LocationID, req.Flag, notifyOr(req.Notify)); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(it))
	})
}

type splitRequest struct {
	Quantity uint32 `json:"quantity" binding:"required"`
	Notify   *bool  `json:"notify"`
}

func (s *server) split(c *gin.Context) {
	var req splitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withItem(c, func(it *item.Item) {
		res, err := it.Split(c.Request.Context(), req.Quantity, notifyOr(req.Notify))
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer func() { _ = res.Release() }()
		c.JSON(http.StatusCreated, gin.H{"source": viewOf(it), "split": viewOf(res)})
	})
}

type mergeRequest struct {
	OtherID  domain.ItemID `json:"other_id" binding:"required"`
	Quantity uint32        `json:"quantity"`
	Notify   *bool         `json:"notify"`
}

func (s *server) merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withItem(c, func(it *item.Item) {
		other, err := s.items.GetItem(c.Request.Context(), req.OtherID, false)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if err := it.Merge(c.Request.Context(), other, req.Quantity, notifyOr(req.Notify)); err != nil {
			var verr domain.ValidationError
			if errors.As(err, &verr) {
				_ = other.Release()
			}
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(it))
	})
}

type stackRequest struct {
	Flag  domain.Flag    `json:"flag"`
	Owner domain.OwnerID `json:"owner"`
}

func (s *server) stack(c *gin.Context) {
	var req stackRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	s.withItem(c, func(it *item.Item) {
		if err := it.StackContainedItems(c.Request.Context(), req.Flag, req.Owner); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item_id": it.ID(), "rows": it.InventoryRowset(req.Flag, req.Owner)})
	})
}

func notifyOr(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func uintQuery(c *gin.Context, name string, bits int) (uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		badRequest(c, "invalid "+name+" "+strconv.Quote(raw))
		return 0, false
	}
	return v, true
}
