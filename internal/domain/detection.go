package domain

// VRUType classifies the vulnerable road user a detection claims to have seen.
type VRUType string

const (
	VRUPedestrian   VRUType = "pedestrian"
	VRUCyclist      VRUType = "cyclist"
	VRUMotorcyclist VRUType = "motorcyclist"
	VRUScooter      VRUType = "scooter"
	VRUWheelchair   VRUType = "wheelchair"
)

// BoundingBox is a normalized [0,1] detection rectangle.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is one ML-model output. Produced externally; read-only input
// to the correlation pipeline. Timestamp is seconds on the session
// reference clock.
type Detection struct {
	DetectionID string      `json:"detection_id"`
	Timestamp   float64     `json:"ts"`
	FrameNumber int         `json:"frame_number"`
	VRUType     VRUType     `json:"vru_type"`
	Confidence  float64     `json:"confidence"`
	Box         BoundingBox `json:"bounding_box"`
}

// GroundTruth is one annotated object from the reference labeling of a
// video, keyed by frame/timestamp. Authored externally.
type GroundTruth struct {
	Timestamp   float64 `json:"ts"`
	FrameNumber int     `json:"frame_number"`
	VRUType     VRUType `json:"vru_type"`
}
