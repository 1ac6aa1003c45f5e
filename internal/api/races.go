package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meur/compendium/internal/models"
	"github.com/meur/compendium/internal/search"
)

type raceResource struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	SizeCode     string         `json:"size_code"`
	Speed        int            `json:"speed"`
	IsSubrace    bool           `json:"is_subrace"`
	ParentRaceID *int64         `json:"parent_race_id"`
	Description  string         `json:"description"`
	Subraces     []raceResource `json:"subraces,omitempty"`
}

func presentRace(race models.Race) raceResource {
	return raceResource{
		ID:           race.ID,
		Name:         race.Name,
		Slug:         race.Slug,
		SizeCode:     race.SizeCode,
		Speed:        race.Speed,
		IsSubrace:    race.IsSubrace(),
		ParentRaceID: race.ParentRaceID,
		Description:  race.Description,
	}
}

// handleListRaces lists races, searching the index when q or filter is given
func (s *Server) handleListRaces(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, lister[models.Race, raceResource]{
		def:     search.Races,
		list:    s.store.ListRaces,
		byIDs:   s.store.RacesByIDs,
		present: presentRace,
	})
}

// handleGetRace returns a race by id or slug, with its subraces
func (s *Server) handleGetRace(w http.ResponseWriter, r *http.Request) {
	race, err := s.store.GetRace(r.Context(), chi.URLParam(r, "idOrSlug"))
	if err != nil {
		respondErr(w, r, err)
		return
	}

	res := presentRace(*race)
	if !race.IsSubrace() {
		subraces, err := s.store.GetSubraces(r.Context(), race.ID)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		for _, sub := range subraces {
			res.Subraces = append(res.Subraces, presentRace(sub))
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": res})
}
