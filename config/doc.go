// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package config 提供 causalrag 管线的统一配置：默认值、YAML 文件加载、
// 环境变量覆盖与构造期验证。配置错误快速失败，不留到运行期。
package config
