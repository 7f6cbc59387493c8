package service

import "errors"

// 领域错误哨兵，handler 层据此映射 HTTP 状态码
var (
	// ErrAnalysisNotFound 分析记录不存在
	ErrAnalysisNotFound = errors.New("分析记录不存在")

	// ErrReviewConflict 审核流转冲突：来源状态不合法或已被并发流转
	ErrReviewConflict = errors.New("审核状态冲突，请刷新后重试")

	// ErrInferenceUnavailable 推理服务不可用（探测失败或调用超时）
	ErrInferenceUnavailable = errors.New("推理服务不可用")

	// ErrReferencesUnavailable 参考动作库不可用（金标准帧集缺失或不足）
	ErrReferencesUnavailable = errors.New("参考动作库不可用")

	// ErrValidation 输入校验失败，在任何外部调用之前拒绝
	ErrValidation = errors.New("输入校验失败")
)
