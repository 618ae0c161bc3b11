package memory

import "agrorec/pkg/domain"

// memoryState holds the collections plus the secondary indexes the services
// query by. Indexes are maintained on every put/remove and rebuilt on import.
type memoryState struct {
	recommendations map[string]Recommendation
	clients         map[string]Client
	products        map[string]Product
	profiles        map[string]UserProfile

	recsByOwner    map[string]map[string]struct{}
	recsBySync     map[domain.SyncStatus]map[string]struct{}
	productsByName map[string]string
}

// Snapshot captures a point-in-time clone of the store state. Version is the
// schema version the maps are laid out in.
type Snapshot struct {
	Version         int                       `json:"version"`
	Recommendations map[string]Recommendation `json:"recommendations"`
	Products        map[string]Product        `json:"products"`
	Clients         map[string]Client         `json:"clients"`
	UserProfiles    map[string]UserProfile    `json:"userProfiles"`
}

// Empty reports whether the snapshot holds no records at all.
func (s Snapshot) Empty() bool {
	return len(s.Recommendations) == 0 && len(s.Products) == 0 && len(s.Clients) == 0 && len(s.UserProfiles) == 0
}

func newMemoryState() memoryState {
	return memoryState{
		recommendations: make(map[string]Recommendation),
		clients:         make(map[string]Client),
		products:        make(map[string]Product),
		profiles:        make(map[string]UserProfile),
		recsByOwner:     make(map[string]map[string]struct{}),
		recsBySync:      make(map[domain.SyncStatus]map[string]struct{}),
		productsByName:  make(map[string]string),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Version:         domain.SchemaVersion,
		Recommendations: make(map[string]Recommendation, len(state.recommendations)),
		Products:        make(map[string]Product, len(state.products)),
		Clients:         make(map[string]Client, len(state.clients)),
		UserProfiles:    make(map[string]UserProfile, len(state.profiles)),
	}
	for k, v := range state.recommendations {
		s.Recommendations[k] = cloneRecommendation(v)
	}
	for k, v := range state.products {
		s.Products[k] = v
	}
	for k, v := range state.clients {
		s.Clients[k] = cloneClient(v)
	}
	for k, v := range state.profiles {
		s.UserProfiles[k] = cloneProfile(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, v := range s.Recommendations {
		state.putRecommendation(cloneRecommendation(v))
	}
	for _, v := range s.Products {
		state.putProduct(v)
	}
	for k, v := range s.Clients {
		state.clients[k] = cloneClient(v)
	}
	for k, v := range s.UserProfiles {
		state.profiles[k] = cloneProfile(v)
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		recommendations: make(map[string]Recommendation, len(s.recommendations)),
		clients:         make(map[string]Client, len(s.clients)),
		products:        make(map[string]Product, len(s.products)),
		profiles:        make(map[string]UserProfile, len(s.profiles)),
		recsByOwner:     make(map[string]map[string]struct{}, len(s.recsByOwner)),
		recsBySync:      make(map[domain.SyncStatus]map[string]struct{}, len(s.recsBySync)),
		productsByName:  make(map[string]string, len(s.productsByName)),
	}
	for k, v := range s.recommendations {
		cloned.recommendations[k] = cloneRecommendation(v)
	}
	for k, v := range s.clients {
		cloned.clients[k] = cloneClient(v)
	}
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.profiles {
		cloned.profiles[k] = cloneProfile(v)
	}
	for k, ids := range s.recsByOwner {
		cloned.recsByOwner[k] = cloneSet(ids)
	}
	for k, ids := range s.recsBySync {
		cloned.recsBySync[k] = cloneSet(ids)
	}
	for k, v := range s.productsByName {
		cloned.productsByName[k] = v
	}
	return cloned
}

func (s *memoryState) putRecommendation(r Recommendation) {
	if prev, ok := s.recommendations[r.ID]; ok {
		s.unindexRecommendation(prev)
	}
	s.recommendations[r.ID] = r
	addToSet(s.recsByOwner, r.OwnerID, r.ID)
	addToSet(s.recsBySync, r.SyncStatus, r.ID)
}

func (s *memoryState) removeRecommendation(id string) {
	prev, ok := s.recommendations[id]
	if !ok {
		return
	}
	s.unindexRecommendation(prev)
	delete(s.recommendations, id)
}

func (s *memoryState) unindexRecommendation(r Recommendation) {
	removeFromSet(s.recsByOwner, r.OwnerID, r.ID)
	removeFromSet(s.recsBySync, r.SyncStatus, r.ID)
}

func (s *memoryState) putProduct(p Product) {
	if prev, ok := s.products[p.ID]; ok && s.productsByName[prev.Name] == p.ID {
		delete(s.productsByName, prev.Name)
	}
	s.products[p.ID] = p
	s.productsByName[p.Name] = p.ID
}

func (s *memoryState) removeProduct(id string) {
	prev, ok := s.products[id]
	if !ok {
		return
	}
	if s.productsByName[prev.Name] == id {
		delete(s.productsByName, prev.Name)
	}
	delete(s.products, id)
}

func addToSet[K comparable](index map[K]map[string]struct{}, key K, id string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeFromSet[K comparable](index map[K]map[string]struct{}, key K, id string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}

func cloneSet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneRecommendation(r Recommendation) Recommendation {
	cp := r
	if r.ProductLines != nil {
		cp.ProductLines = append(make([]domain.ProductLine, 0, len(r.ProductLines)), r.ProductLines...)
	}
	if r.SafetyRecommendations != nil {
		cp.SafetyRecommendations = append(make([]string, 0, len(r.SafetyRecommendations)), r.SafetyRecommendations...)
	}
	cp.FarmerSignature = cloneStringPtr(r.FarmerSignature)
	cp.TechnicianSignature = cloneStringPtr(r.TechnicianSignature)
	cp.FollowUp.BeforePhoto = cloneStringPtr(r.FollowUp.BeforePhoto)
	cp.FollowUp.AfterPhoto = cloneStringPtr(r.FollowUp.AfterPhoto)
	return cp
}

func cloneClient(c Client) Client {
	cp := c
	cp.Signature = cloneStringPtr(c.Signature)
	return cp
}

func cloneProfile(p UserProfile) UserProfile {
	cp := p
	cp.Signature = cloneStringPtr(p.Signature)
	return cp
}

// Buckets maps each collection name to a pointer at the snapshot map holding
// it. Durable backends persist one payload per bucket.
func (s *Snapshot) Buckets() map[string]any {
	return map[string]any{
		domain.CollectionRecommendations: &s.Recommendations,
		domain.CollectionProducts:        &s.Products,
		domain.CollectionClients:         &s.Clients,
		domain.CollectionUserProfiles:    &s.UserProfiles,
	}
}

// BucketNames lists the persisted buckets in a stable order.
func BucketNames() []string {
	return []string{
		domain.CollectionRecommendations,
		domain.CollectionProducts,
		domain.CollectionClients,
		domain.CollectionUserProfiles,
	}
}
