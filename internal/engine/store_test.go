package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu        sync.Mutex
	players   map[int]model.Player
	schedules []model.Schedule
	campaigns map[int]model.Campaign
	contents  map[int]model.Content
	dists     map[int]model.ContentDistribution
	nextDist  int
	panicFor  int
}

func newMemStore() *memStore {
	return &memStore{
		players:   map[int]model.Player{},
		campaigns: map[int]model.Campaign{},
		contents:  map[int]model.Content{},
		dists:     map[int]model.ContentDistribution{},
	}
}

func (s *memStore) addPlayer(p model.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
}

func (s *memStore) player(id int) model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[id]
}

func (s *memStore) addCampaign(c model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
	for _, cc := range c.Contents {
		s.contents[cc.Content.ID] = cc.Content
	}
}

func (s *memStore) addSchedule(sc model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, sc)
}

func (s *memStore) GetPlayer(_ context.Context, id int) (model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return model.Player{}, model.ErrNotFound
	}
	return p, nil
}

func (s *memStore) ListPlayers(context.Context) ([]model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SavePlayerState(_ context.Context, p *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[p.ID]; !ok {
		return model.ErrNotFound
	}
	s.players[p.ID] = *p
	return nil
}

func (s *memStore) SchedulesForPlayer(_ context.Context, playerID int) ([]model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicFor == playerID {
		panic("corrupt schedule row")
	}
	var out []model.Schedule
	for _, sc := range s.schedules {
		if sc.PlayerID == playerID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *memStore) CampaignsByIDs(_ context.Context, ids []int) (map[int]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]model.Campaign, len(ids))
	for _, id := range ids {
		if c, ok := s.campaigns[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *memStore) GetContent(_ context.Context, id int) (model.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return model.Content{}, model.ErrNotFound
	}
	return c, nil
}

func (s *memStore) GetDistribution(_ context.Context, id int) (model.ContentDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dists[id]
	if !ok {
		return model.ContentDistribution{}, model.ErrNotFound
	}
	return d, nil
}

func (s *memStore) FindDistribution(_ context.Context, contentID, playerID int) (model.ContentDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dists {
		if d.ContentID == contentID && d.PlayerID == playerID {
			return d, nil
		}
	}
	return model.ContentDistribution{}, model.ErrNotFound
}

func (s *memStore) DistributionsForPlayer(_ context.Context, playerID int) ([]model.ContentDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ContentDistribution
	for _, d := range s.dists {
		if d.PlayerID == playerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) CreateDistribution(_ context.Context, d *model.ContentDistribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDist++
	d.ID = s.nextDist
	s.dists[d.ID] = *d
	return nil
}

func (s *memStore) SaveDistribution(_ context.Context, d *model.ContentDistribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dists[d.ID] = *d
	return nil
}
