package mdr

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile 机型协议参数：命令通道数据类型与 NC/ASM 查询类别
type Profile struct {
	DataType  byte `yaml:"data_type"`
	NcAsmType byte `yaml:"nc_asm_type"`
}

// ModelTable 机型名 -> 协议参数映射
// 键为小写机型标识，按设备名子串匹配
type ModelTable struct {
	Models map[string]Profile `yaml:"models"`
}

// DefaultModelTable 返回内置机型映射
func DefaultModelTable() *ModelTable {
	return &ModelTable{
		Models: map[string]Profile{
			"wh-1000xm6": {DataType: TypeDataMdr, NcAsmType: NcAsmTypeXM6},
			"wh-1000xm5": {DataType: TypeDataMdrNo2, NcAsmType: NcAsmTypeXM5},
			"wh-1000xm4": {DataType: TypeDataMdr, NcAsmType: NcAsmTypeV1V2},
			"wh-1000xm3": {DataType: TypeDataMdr, NcAsmType: NcAsmTypeV1V2},
		},
	}
}

// DefaultProfile 未识别机型的兜底参数（按最新机型处理）
func DefaultProfile() Profile {
	return Profile{DataType: TypeDataMdr, NcAsmType: NcAsmTypeXM6}
}

// LoadModelTable 从 YAML 文件加载机型映射
func LoadModelTable(path string) (*ModelTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model table: %w", err)
	}
	var t ModelTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("unmarshal model table: %w", err)
	}
	if t.Models == nil {
		t.Models = make(map[string]Profile)
	}
	return &t, nil
}

// Merge 合并另一个映射表的条目，同键覆盖
func (t *ModelTable) Merge(other *ModelTable) {
	if t == nil || t.Models == nil || other == nil || other.Models == nil {
		return
	}
	for k, v := range other.Models {
		t.Models[strings.ToLower(k)] = v
	}
}

// Resolve 按精确键查询机型参数
func (t *ModelTable) Resolve(model string) (Profile, bool) {
	if t == nil || t.Models == nil {
		return Profile{}, false
	}
	p, ok := t.Models[strings.ToLower(model)]
	return p, ok
}

// ResolveByName 按设备名子串匹配机型参数，未命中返回兜底参数
// 设备广播名形如 "WH-1000XM6"，大小写不敏感
func (t *ModelTable) ResolveByName(name string) (Profile, string) {
	lower := strings.ToLower(name)
	if t != nil {
		for k, p := range t.Models {
			if strings.Contains(lower, k) {
				return p, k
			}
		}
	}
	return DefaultProfile(), ""
}
