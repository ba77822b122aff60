// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package planner

import (
	"bytes"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"agent-platform/internal/model/llm"
)

// ImageInfo 随问题提供的图片的基本信息
type ImageInfo struct {
	Path   string `json:"image_path,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// String 以 JSON 形式写入提示词；没有图片时为 {}
func (i ImageInfo) String() string {
	raw, err := json.Marshal(i)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// LoadImage 读取图片并解析尺寸。路径为空或不是普通文件时返回零值；
// 能读取但无法解码时只保留路径，图片仍随消息发送。
func LoadImage(path string) (ImageInfo, []llm.Image) {
	if path == "" {
		return ImageInfo{}, nil
	}
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return ImageInfo{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageInfo{}, nil
	}
	info := ImageInfo{Path: path}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width, info.Height = cfg.Width, cfg.Height
	}
	return info, []llm.Image{{Data: data, MIMEType: http.DetectContentType(data)}}
}
