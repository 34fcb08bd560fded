package models

import "time"

// KeypointName 人体关键点名称（17点）
type KeypointName string

const (
	Nose          KeypointName = "nose"
	LeftEye       KeypointName = "leftEye"
	RightEye      KeypointName = "rightEye"
	LeftEar       KeypointName = "leftEar"
	RightEar      KeypointName = "rightEar"
	LeftShoulder  KeypointName = "leftShoulder"
	RightShoulder KeypointName = "rightShoulder"
	LeftElbow     KeypointName = "leftElbow"
	RightElbow    KeypointName = "rightElbow"
	LeftWrist     KeypointName = "leftWrist"
	RightWrist    KeypointName = "rightWrist"
	LeftHip       KeypointName = "leftHip"
	RightHip      KeypointName = "rightHip"
	LeftKnee      KeypointName = "leftKnee"
	RightKnee     KeypointName = "rightKnee"
	LeftAnkle     KeypointName = "leftAnkle"
	RightAnkle    KeypointName = "rightAnkle"
)

// KeypointVocabulary 固定顺序的关键点词表
var KeypointVocabulary = [...]KeypointName{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// KeypointCount 关键点数量
const KeypointCount = len(KeypointVocabulary)

// IsValid 是否属于关键点词表
func (n KeypointName) IsValid() bool {
	for _, k := range KeypointVocabulary {
		if k == n {
			return true
		}
	}
	return false
}

// Position 像素坐标（y 轴向下）
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint 单个关键点
type Keypoint struct {
	Name       KeypointName `json:"name"`
	Position   Position     `json:"position"`
	Confidence float64      `json:"confidence"` // [0,1]
}

// Frame 视频帧句柄（对引擎不透明，仅携带尺寸等元数据）
type Frame struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
	Data       []byte    `json:"-"`
}

// PoseEstimate 单帧姿态估计结果（创建后不可修改）
type PoseEstimate struct {
	FrameID     string     `json:"frame_id"`
	FrameWidth  int        `json:"frame_width"`
	FrameHeight int        `json:"frame_height"`
	Keypoints   []Keypoint `json:"keypoints"`
	DetectedAt  time.Time  `json:"detected_at"`
}

// Keypoint 按名称查找关键点
func (p *PoseEstimate) Keypoint(name KeypointName) (Keypoint, bool) {
	for _, kp := range p.Keypoints {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}
