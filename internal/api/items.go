package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meur/compendium/internal/models"
	"github.com/meur/compendium/internal/search"
)

type itemTypeResource struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type itemResource struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	Slug               string            `json:"slug"`
	ItemType           *itemTypeResource `json:"item_type"`
	Rarity             string            `json:"rarity"`
	RequiresAttunement bool              `json:"requires_attunement"`
	IsMagic            bool              `json:"is_magic"`
	CostCP             *int              `json:"cost_cp"`
	Weight             *float64          `json:"weight"`
	Description        string            `json:"description"`
}

func presentItemType(t models.ItemType) itemTypeResource {
	return itemTypeResource{ID: t.ID, Name: t.Name, Code: t.Code}
}

func presentItem(item models.Item) itemResource {
	res := itemResource{
		ID:                 item.ID,
		Name:               item.Name,
		Slug:               item.Slug,
		Rarity:             item.Rarity,
		RequiresAttunement: item.RequiresAttunement,
		IsMagic:            item.IsMagic,
		CostCP:             item.CostCP,
		Weight:             item.Weight,
		Description:        item.Description,
	}
	if item.ItemType != nil {
		t := presentItemType(*item.ItemType)
		res.ItemType = &t
	}
	return res
}

// handleListItems lists items, searching the index when q or filter is given
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, lister[models.Item, itemResource]{
		def:     search.Items,
		list:    s.store.ListItems,
		byIDs:   s.store.ItemsByIDs,
		present: presentItem,
	})
}

// handleGetItem returns a single item by id or slug
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItem(r.Context(), chi.URLParam(r, "idOrSlug"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": presentItem(*item)})
}

// handleGetItemTypes returns all item types
func (s *Server) handleGetItemTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.GetItemTypes(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}

	data := make([]itemTypeResource, len(types))
	for i, t := range types {
		data[i] = presentItemType(t)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}
