package types

// AssetType 枚举受支持的资产类别，批次按此分组。
type AssetType string

const (
	AssetCover        AssetType = "cover"
	AssetCard         AssetType = "card"
	AssetIcon         AssetType = "icon"
	AssetIllustration AssetType = "illustration"
)

// AllAssetTypes 返回全部已知资产类型，顺序固定。
func AllAssetTypes() []AssetType {
	return []AssetType{AssetCover, AssetCard, AssetIcon, AssetIllustration}
}

// Valid 判断资产类型是否为已知枚举值。
func (t AssetType) Valid() bool {
	switch t {
	case AssetCover, AssetCard, AssetIcon, AssetIllustration:
		return true
	}
	return false
}
