// Package generation 将回答生成请求分派到可切换的生成后端。
//
// Manager 持有一组按名称注册的后端和当前选中的后端名称。每次
// Generate/GenerateStream 调用在入口处读取一次选中名称，先用
// Truncator 把对话历史截断到 Token 预算以内，再委托给该后端。
//
// # 基本用法
//
//	cfg, err := config.Load("verba.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m, err := generation.FromConfig(cfg.Generation)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	m.SelectBackend(config.GeneratorGPT4)
//	answer, err := m.Generate(ctx, []string{"What is Verba?"}, contexts, conversation)
//
// # 流式生成
//
// GenerateStream 返回一个块通道和一个错误通道。块按后端产生的顺序
// 逐个送达，通道无缓冲；取消 ctx 会停止后端继续产生块。
//
//	chunks, errs := m.GenerateStream(ctx, queries, contexts, conversation)
//	for chunk := range chunks {
//	    fmt.Print(chunk)
//	}
//	if err := <-errs; err != nil {
//	    return err
//	}
package generation
